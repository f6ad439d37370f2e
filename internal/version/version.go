package version

// Version is the current version of fieldsync.
// Can be overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "1.4.0"

// Name is the application name.
const Name = "fieldsync"

// Description is a short description of the application.
const Description = "Field mapping and schema synchronization engine"
