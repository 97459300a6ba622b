package proctitle

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

var errEmptyTitle = errors.New("empty process title")

// Name builds a process title from the service name and replica index, e.g. "presence#2".
// Instance 0 and unset instances use the bare service name.
func Name(service string, instance int) string {
	service = strings.TrimSpace(service)
	if instance <= 0 {
		return service
	}
	return service + "#" + strconv.Itoa(instance)
}

// Set rewrites os.Args[0] and, where the platform allows it, the kernel thread name.
func Set(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errEmptyTitle
	}
	if len(os.Args) > 0 {
		os.Args[0] = title
	}
	return setThreadName(title)
}
