package registry

// Usage restricts which programs accept a given backend.
type Usage uint8

const (
	// UsageCLI marks backends available to the command-line client.
	UsageCLI Usage = 1 << iota
	// UsageDaemon marks backends available to long-running daemons
	// (xdao-memoproofd, xdao-receiptd).
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
