package killswitch

import "context"

// Dummy is a Backend that confirms every request without touching the
// network stack. Useful in tests and on hosts where no privileged backend
// is available but the mode lifecycle still has to work.
type Dummy struct{}

func (d *Dummy) InstallRules(context.Context, RuleSet) error { return nil }

func (d *Dummy) RemoveRules(context.Context) error { return nil }

func (d *Dummy) EnableIPv6LeakProtection(context.Context) error { return nil }

func (d *Dummy) DisableIPv6LeakProtection(context.Context) error { return nil }
