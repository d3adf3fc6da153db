// Package logx is a thin value-type wrapper over zerolog.
//
// Console output is human readable with colour only on a TTY, the optional
// file sink is JSON lines, and Service.Apply reconfigures both while the
// process runs.
package logx
