package bot

import (
	"errors"
	"fmt"
	"strings"

	"newscurator/internal/model"
)

// BundleArgs holds the parsed arguments of /newbundle and /editbundle.
// Keyword lists are nil when their section is absent.
type BundleArgs struct {
	Head     string
	Positive []string
	Negative []string
}

// ParseBundleArgs parses "<head> | <positive> | <negative>" where both
// keyword sections are comma-delimited and the negative one is optional.
// Head is the bundle name for /newbundle and the slug for /editbundle.
func ParseBundleArgs(args string) (BundleArgs, error) {
	parts := strings.Split(args, "|")
	if len(parts) < 2 || len(parts) > 3 {
		return BundleArgs{}, errors.New("usage: <name> | <positive keywords> | <negative keywords>")
	}

	out := BundleArgs{Head: strings.TrimSpace(parts[0])}
	if out.Head == "" {
		return BundleArgs{}, errors.New("name is required")
	}
	if pos := strings.TrimSpace(parts[1]); pos != "" {
		out.Positive = model.ParseKeywords(pos)
	}
	if len(parts) == 3 {
		if neg := strings.TrimSpace(parts[2]); neg != "" {
			out.Negative = model.ParseNegativeKeywords(neg)
		}
	}
	return out, nil
}

// ParsePresetArgs extracts the action and preset name of /preset.
// Format: save|load <name>
func ParsePresetArgs(args string) (action, name string, err error) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 {
		return "", "", errors.New("usage: /preset save|load <name>")
	}
	action = strings.ToLower(parts[0])
	if action != "save" && action != "load" {
		return "", "", fmt.Errorf("unknown preset action %q, use: save, load", parts[0])
	}
	name = strings.TrimSpace(parts[1])
	if name == "" {
		return "", "", errors.New("preset name cannot be empty")
	}
	return action, name, nil
}

// ParseSlugArg extracts a bundle slug from a command argument string.
func ParseSlugArg(args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", errors.New("bundle slug is required")
	}
	return strings.ToLower(fields[0]), nil
}
