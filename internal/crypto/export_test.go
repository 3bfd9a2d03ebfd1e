package crypto

import "time"

// SetClock replaces the provider's time source.
func (p *VaultProvider) SetClock(now func() time.Time) { p.now = now }
