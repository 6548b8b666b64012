package pairing

// Registrar makes a written manifest visible to the browser.
type Registrar interface {
	Register(hostName, manifestPath string, manifest []byte) error
}

// RegistrarFunc adapts a function to Registrar.
type RegistrarFunc func(hostName, manifestPath string, manifest []byte) error

// Register calls f.
func (f RegistrarFunc) Register(hostName, manifestPath string, manifest []byte) error {
	return f(hostName, manifestPath, manifest)
}
