package types

// Version is the application version, overridden at build time via
// -ldflags "-X github.com/visagekit/blendstream/pkg/domain/types.Version=..."
var Version = "0.1.0"

// ServiceName identifies this service in health responses and notifications
const ServiceName = "blendstream"
