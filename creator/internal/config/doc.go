// Package config loads and watches the creator configuration file.
//
// Load(path) reads the YAML file, applies defaults (frame "map", 120s decay,
// 30 Hz, 1s transform wait, unbounded queue), then validates it. Params is
// the live section: ParamStore holds the current value behind an atomic
// pointer and accepts partial JSON-style updates through Apply, which decodes
// with mapstructure so smoothing_rate may be given in seconds and qtc_type by
// name or by index.
//
// Watch(ctx, path, onChange) reloads the file on change with fsnotify.
package config
