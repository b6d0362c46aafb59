// Package config defines the pipeline settings and provides helpers to load,
// validate and save them in YAML format.
//
// Command lines are stored as argv lists and may contain placeholders such as
// {project}, {version} or {bindir} that the phases expand at run time.
package config
