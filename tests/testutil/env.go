package testutil

// Lookup returns an os.LookupEnv replacement backed by vars, so tests can
// configure the broker without touching the process environment.
//
// Example usage:
//
//	cfg := &config.Config{Lookup: testutil.Lookup(map[string]string{
//	    config.EnvAPIURL: srv.URL,
//	    config.EnvAPIKey: "key=k;",
//	})}
func Lookup(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}
