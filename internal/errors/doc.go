// Package errors provides structured, actionable error messages for the
// dataverse command line tools.
//
// Every error has a code (e.g. "DV001") registered with a category, a short
// message, a longer explanation and a documentation URL. Engine errors are
// mapped onto codes with FromEngine; configuration errors carry the file
// location they were found at.
//
// # Error Categories
//
//   - engine: errors returned by the reactive engine (cycles, ranges, paths)
//   - config: configuration file errors
//   - cli: command line usage errors
//
// # Usage
//
//	err := errors.New("DV101").
//	    WithLocation("dataverse.yaml", 3, 7).
//	    WithSuggestion("loop.fps must be between 1 and 1000")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR DV101: Invalid configuration value
//	//
//	//   dataverse.yaml:3:7
//	//
//	//      2 │ loop:
//	//   →  3 │   fps: 0
//	//        │       ^
//	//
//	//   Hint: loop.fps must be between 1 and 1000
package errors
