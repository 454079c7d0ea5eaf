package api_helpers

// Set by the CLI when phase timings should be printed with the debug log.
// Only the code that creates the root timer reads this. Everything below it
// checks whether the timer it was handed is nil.
var UseTimer bool
