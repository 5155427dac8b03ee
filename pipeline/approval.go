package pipeline

// ApprovalMode selects when tool calls need human approval.
type ApprovalMode string

const (
	// ApprovalNever executes every tool call without asking.
	ApprovalNever ApprovalMode = "never"

	// ApprovalAlways interrupts for every dispatch batch.
	ApprovalAlways ApprovalMode = "always"

	// ApprovalAllowList executes allow-listed tools without asking and
	// interrupts for anything else.
	ApprovalAllowList ApprovalMode = "allowlist"
)

// ApprovalPolicy decides whether a dispatch batch needs approval.
type ApprovalPolicy struct {
	Mode      ApprovalMode `yaml:"mode"`
	AllowList []string     `yaml:"allow_list"`
}

// Requires reports whether any of the named tools needs approval.
func (p ApprovalPolicy) Requires(names []string) bool {
	switch p.Mode {
	case ApprovalAlways:
		return len(names) > 0
	case ApprovalAllowList:
		allowed := make(map[string]struct{}, len(p.AllowList))
		for _, name := range p.AllowList {
			allowed[name] = struct{}{}
		}
		for _, name := range names {
			if _, ok := allowed[name]; !ok {
				return true
			}
		}
		return false
	default:
		return false
	}
}
