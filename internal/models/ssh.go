package models

// SSHCommandConfig describes a command run on the destination host after all apps were backed up.
type SSHCommandConfig struct {
	Host       string
	Port       int
	Username   string
	PrivateKey []byte // loaded from KeyPath when empty
	KeyPath    string
	KnownHosts string // known_hosts file; host keys are not verified when empty
	Command    string // e.g. "sudo shutdown -h +1" or "sync"
	OnFailure  bool   // also run when a backup failed
}

// SSHResult holds the result of an SSH operation.
type SSHResult struct {
	CommandRun bool
	Output     string
	Error      error
}
