package helloscan

import (
	"strings"
)

func pickString(cli string, local, global *string) string {
	if cli != "" {
		return cli
	}
	if local != nil && *local != "" {
		return *local
	}
	if global != nil && *global != "" {
		return *global
	}
	return ""
}

func pickInt(cli int, local, global *int) int {
	if cli != 0 {
		return cli
	}
	if local != nil && *local != 0 {
		return *local
	}
	if global != nil && *global != 0 {
		return *global
	}
	return 0
}

func pickBool(cli bool, local, global *bool) bool {
	if cli {
		return true
	}
	if local != nil {
		return *local
	}
	if global != nil {
		return *global
	}
	return false
}

// pickList prefers the CLI value when set, then the first non-nil config list.
func pickList(cli string, cliSet bool, local, global []string) []string {
	if cliSet {
		return splitList(cli)
	}
	if local != nil {
		return local
	}
	return global
}

// pickEnabled keeps the nil/empty distinction of rules.enabled: nil means
// every rule, an empty list means none.
func pickEnabled(cli string, cliSet bool, local, global *[]string) []string {
	switch {
	case cliSet:
		return splitList(cli)
	case local != nil:
		return nonNilList(*local)
	case global != nil:
		return nonNilList(*global)
	}
	return nil
}

// splitList splits a comma-separated flag value. The result is never nil.
func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func nonNilList(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
