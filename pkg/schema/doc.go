// Package schema validates tool-call arguments against the JSON Schema a tool advertises.
//
// Only the subset models actually receive is understood: an object with typed
// "properties", a "required" list, string "enum"s and typed array "items".
// Anything else in the schema is ignored rather than rejected.
//
// Basic usage:
//
//	s, err := schema.Compile(tool.Parameters)
//	if err != nil {
//	    // The advertised schema itself is malformed
//	}
//
//	if err := s.Validate(call.Args); err != nil {
//	    for _, fe := range schema.ValidationErrors(err) {
//	        // Handle each field failure
//	    }
//	}
//
// Schemas can also be built programmatically:
//
//	s := &schema.Schema{
//	    Fields:   map[string]schema.Type{"query": schema.String(), "limit": schema.Integer()},
//	    Required: []string{"query"},
//	}
package schema
