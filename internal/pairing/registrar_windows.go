//go:build windows

package pairing

import (
	"fmt"

	"golang.org/x/sys/windows/registry"
)

const nativeHostsKey = `Software\Google\Chrome\NativeMessagingHosts\`

type registryRegistrar struct{}

// DefaultRegistrar points the per-user Chrome registry key at the manifest.
func DefaultRegistrar() Registrar {
	return registryRegistrar{}
}

func (registryRegistrar) Register(hostName, manifestPath string, _ []byte) error {
	key, _, err := registry.CreateKey(registry.CURRENT_USER, nativeHostsKey+hostName, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("reg_error:%v", err)
	}
	defer key.Close()
	if err := key.SetStringValue("", manifestPath); err != nil {
		return fmt.Errorf("reg_error:%v", err)
	}
	return nil
}
