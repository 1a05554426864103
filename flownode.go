package flownode

// Name identifies the service in logs and health responses
const Name = "flownode"

// Version is replaced at build time with -ldflags "-X ..."
var Version = "dev"
