//go:build !linux

package proctitle

func setThreadName(string) error { return nil }
