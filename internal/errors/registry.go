package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://dataverse.dev/docs/errors/"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Engine Errors (DV001-DV099)
	// ============================================

	"DV001": {
		Category: CategoryEngine,
		Message:  "Dependency cycle detected",
		Detail:   "A derivation read itself, directly or through other derivations, while it was being evaluated. The graph has to be restructured; the error is not recovered automatically.",
		DocURL:   docBase + "DV001",
	},
	"DV002": {
		Category: CategoryEngine,
		Message:  "Index out of range",
		Detail:   "An array was read or mutated at an index outside its current bounds. The array was left unchanged.",
		DocURL:   docBase + "DV002",
	},
	"DV003": {
		Category: CategoryEngine,
		Message:  "Unresolved pointer path",
		Detail:   "A pointer path runs through a missing key or index. Pointer derivations resolve to Absent in this case; only strict lookups fail.",
		DocURL:   docBase + "DV003",
	},
	"DV004": {
		Category: CategoryEngine,
		Message:  "Evaluation failed",
		Detail:   "A map, flatMap, reduce or autoDerive function returned an error or panicked. Derivations reading it fail with the same error until it evaluates successfully.",
		DocURL:   docBase + "DV004",
	},
	"DV005": {
		Category: CategoryEngine,
		Message:  "Subscriber panicked",
		Detail:   "A tap callback panicked during delivery. The remaining subscribers were still notified.",
		DocURL:   docBase + "DV005",
	},
	"DV006": {
		Category: CategoryEngine,
		Message:  "Tick already in progress",
		Detail:   "Tick was called from inside a tick, usually from a tap callback. Mutations made by callbacks are propagated by the next tick.",
		DocURL:   docBase + "DV006",
	},
	"DV007": {
		Category: CategoryEngine,
		Message:  "Frame loop closed",
		Detail:   "Work was handed to a frame loop that has stopped.",
		DocURL:   docBase + "DV007",
	},

	// ============================================
	// Configuration Errors (DV100-DV199)
	// ============================================

	"DV100": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "No dataverse.yaml, dataverse.yml or dataverse.json was found. Run 'dataverse config init' to create one.",
		DocURL:   docBase + "DV100",
	},
	"DV101": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration field holds a value outside its allowed range.",
		DocURL:   docBase + "DV101",
	},
	"DV102": {
		Category: CategoryConfig,
		Message:  "Configuration file could not be parsed",
		Detail:   "The configuration file is not valid YAML or JSON.",
		DocURL:   docBase + "DV102",
	},
	"DV103": {
		Category: CategoryConfig,
		Message:  "Configuration file could not be written",
		DocURL:   docBase + "DV103",
	},
	"DV104": {
		Category: CategoryConfig,
		Message:  "Configuration watcher failed",
		Detail:   "The configuration file could not be watched for changes. The last loaded configuration stays in effect.",
		DocURL:   docBase + "DV104",
	},

	// ============================================
	// CLI Errors (DV200-DV299)
	// ============================================

	"DV200": {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
		DocURL:   docBase + "DV200",
	},
	"DV201": {
		Category: CategoryCLI,
		Message:  "Inspector server failed",
		Detail:   "The inspector HTTP server could not listen on the configured address.",
		DocURL:   docBase + "DV201",
	},
	"DV202": {
		Category: CategoryCLI,
		Message:  "File already exists",
		Detail:   "Refusing to overwrite an existing file without --force.",
		DocURL:   docBase + "DV202",
	},
}

// GetAllCodes returns all registered error codes in ascending order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
