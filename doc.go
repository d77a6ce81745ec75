// Package dossier runs multi-agent web research: a planner turns a query into
// a list of web searches, a search agent summarizes each one, and a writer
// turns the summaries into a markdown report with follow-up questions.
//
// # Architecture
//
// A Manager drives every run through four phases:
//
//  1. Planning: the Planner asks its model for a WebSearchPlan.
//  2. Searching: plan items run through the Searcher in batches of at most
//     five (WithBatchSize). A batch finishes before the next one starts.
//  3. Writing: the Writer receives the query and the successful summaries and
//     returns ReportData.
//  4. Done.
//
// Each run gets a fresh trace id. It is stored on the context handed to every
// provider (TraceIDFromContext), attached to every log line as "trace_id" and
// stamped on every progress Event sent to the Printer.
//
// # Failures
//
// A failed search is retried (WithSearchRetries) and then either skipped or
// turned into a run failure, depending on WithFailurePolicy. If no search
// succeeds the run returns ErrNoSummaries. Result carries whatever was
// produced before a failure.
//
// # Cost Tracking
//
// LLMProvider.Generate returns an LLMResponse carrying the cost of the call.
// Search costs are configured with WithSearchCost. Result.Cost is the total.
//
// # Basic Usage
//
//	m := dossier.New(
//	    dossier.WithModel(myLLM),
//	    dossier.WithSearchProvider(search.NewDuckDuckGo()),
//	    dossier.WithPrinter(printer.NewConsole(os.Stderr)),
//	)
//
//	res, err := m.Run(ctx, "What changed in the EU AI Act in 2025?")
//	fmt.Println(res.Report.MarkdownReport)
//	fmt.Printf("Cost: $%.4f\n", res.Cost)
//
// Models that implement StructuredLLMProvider receive the JSON schema of the
// expected output (PlanSchema, ReportSchema). Other models are prompted for
// JSON and their output is parsed leniently.
package dossier
