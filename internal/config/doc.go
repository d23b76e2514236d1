// Package config provides configuration management for scadalab.
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables prefixed with SCADALAB_ (highest priority)
//  2. A YAML file (config.yaml, configs/config.yaml, or an explicit path)
//  3. Default values (lowest priority)
//
// Examples:
//
//	SCADALAB_SERVER_PORT=9090
//	SCADALAB_PROCESSING_GAP_MULTIPLIER=3
//	SCADALAB_PROCESSING_DISABLED_METHODS=gpr,mls
//
// Processing settings are plain values passed into the schema detector,
// validators and engines when they are constructed; no package holds
// mutable global configuration.
package config
