package intercept

import (
	"fmt"
	"strings"
)

// dangerousFragments rejects argument payloads carrying well-known
// destructive or injection constructs, case-insensitively.
var dangerousFragments = []string{
	"rm -rf",
	"drop table",
	"<script>",
	"javascript:",
	"sudo",
	"; rm ",
	"| rm ",
	"mkfs",
	"dd if=",
	":(){ :|:& };:",
}

// ListValidator admits tools by allow-/deny-list. A non-empty allow list
// is exclusive; the deny list always rejects.
type ListValidator struct {
	allow map[string]bool
	deny  map[string]bool
}

// NewListValidator builds the validator from the two lists. Either may be
// empty.
func NewListValidator(allowed, denied []string) *ListValidator {
	v := &ListValidator{
		allow: make(map[string]bool, len(allowed)),
		deny:  make(map[string]bool, len(denied)),
	}
	for _, name := range allowed {
		v.allow[name] = true
	}
	for _, name := range denied {
		v.deny[name] = true
	}
	return v
}

// Name implements Validator.
func (v *ListValidator) Name() string { return "tool_list" }

// Validate implements Validator.
func (v *ListValidator) Validate(call ToolCall) (bool, string) {
	if v.deny[call.ToolName] {
		return false, fmt.Sprintf("tool %q is deny-listed", call.ToolName)
	}
	if len(v.allow) > 0 && !v.allow[call.ToolName] {
		return false, fmt.Sprintf("tool %q is not on the allow list", call.ToolName)
	}
	return true, ""
}

// DangerousArgsValidator rejects calls whose argument representation
// contains a known-dangerous fragment.
type DangerousArgsValidator struct{}

// Name implements Validator.
func (DangerousArgsValidator) Name() string { return "dangerous_args" }

// Validate implements Validator.
func (DangerousArgsValidator) Validate(call ToolCall) (bool, string) {
	repr := strings.ToLower(argString(call.Arguments))
	for _, frag := range dangerousFragments {
		if strings.Contains(repr, frag) {
			return false, fmt.Sprintf("dangerous argument pattern %q", frag)
		}
	}
	return true, ""
}

// argString flattens arguments into one searchable representation.
func argString(args map[string]interface{}) string {
	if len(args) == 0 {
		return ""
	}
	var b strings.Builder
	for key, val := range args {
		fmt.Fprintf(&b, "%s=%v ", key, val)
	}
	return b.String()
}

var (
	_ Validator = (*ListValidator)(nil)
	_ Validator = DangerousArgsValidator{}
)
