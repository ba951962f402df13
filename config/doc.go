// Package config loads service configuration from a YAML file, an optional
// .env file and the process environment using Viper and godotenv.
//
// # Usage
//
//	var cfg Config
//	if err := config.LoadConfig("resilienced", &cfg); err != nil {
//	    return err
//	}
//
// Environment variables override file values using the service prefix and a
// double underscore between nesting levels (e.g. RESILIENCED_REDIS__ADDR).
package config
