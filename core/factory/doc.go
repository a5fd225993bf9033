// Package factory provides a small generic registry used to instantiate modules
// from configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[schedule.Persistence]()
//	reg.Register("sqlite", func(conf map[string]any) (schedule.Persistence, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return persistence.NewSQLiteStore(c.Path)
//	})
//	p, err := reg.Create(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": "station.db"}})
package factory
