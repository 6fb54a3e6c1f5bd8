// Package netpolicy decides whether the current connection is acceptable
// for synchronization.
package netpolicy

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/loja-mae/fieldsync/internal/notify"
	"github.com/loja-mae/fieldsync/internal/store"
)

// ConnectionType classifies the active network link. Most platforms cannot
// classify the link at all; those report ConnUnknown.
type ConnectionType string

const (
	ConnUnknown   ConnectionType = "unknown"
	ConnWiFi      ConnectionType = "wifi"
	ConnEthernet  ConnectionType = "ethernet"
	ConnCellular  ConnectionType = "cellular"
	ConnBluetooth ConnectionType = "bluetooth"
	ConnWimax     ConnectionType = "wimax"
)

// Metered reports whether the link is positively classified as a metered
// connection type.
func (t ConnectionType) Metered() bool {
	switch t {
	case ConnCellular, ConnBluetooth, ConnWimax:
		return true
	}
	return false
}

// Probe reports device connectivity. Implementations are platform
// specific; the evaluator only consumes the result.
type Probe interface {
	// Online reports whether the device has any network at all.
	Online(ctx context.Context) bool

	// ConnectionType classifies the active link, ConnUnknown when the
	// platform cannot tell.
	ConnectionType(ctx context.Context) ConnectionType
}

// Evaluator applies the network policy: no sync while offline, metered
// links only when the user allowed mobile data, fail open when the link
// cannot be classified.
type Evaluator struct {
	probe    Probe
	prefs    store.PreferencesStore
	notifier notify.Notifier
	logger   *logrus.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(probe Probe, prefs store.PreferencesStore, notifier notify.Notifier, logger *logrus.Logger) *Evaluator {
	return &Evaluator{
		probe:    probe,
		prefs:    prefs,
		notifier: notifier,
		logger:   logger,
	}
}

// CanSync decides whether a sync pass may run right now. Preferences are
// read fresh on every call; a storage failure while reading them is
// returned so the caller can abort the whole pass.
func (e *Evaluator) CanSync(ctx context.Context) (bool, error) {
	if !e.probe.Online(ctx) {
		e.logger.Debug("Sync denied: device is offline")
		return false, nil
	}

	prefs, err := e.prefs.GetSyncPreferences(ctx)
	if err != nil {
		return false, err
	}
	if prefs.AllowMobileData {
		return true, nil
	}

	connType := e.probe.ConnectionType(ctx)
	if !connType.Metered() {
		return true, nil
	}

	e.logger.WithField("connection_type", connType).Info("Sync denied by network policy")
	e.notifier.Advise(notify.LevelInfo,
		"Sincronização pausada. Conecte-se a uma rede Wi-Fi ou permita dados móveis nas configurações.")
	return false, nil
}

// InterfaceProbe is the default Probe: online when any non-loopback
// interface is up with an address, link classification always unknown
// (which the policy treats as unmetered).
type InterfaceProbe struct{}

// Online reports whether any non-loopback interface is up with an address.
func (InterfaceProbe) Online(ctx context.Context) bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// ConnectionType always reports ConnUnknown.
func (InterfaceProbe) ConnectionType(ctx context.Context) ConnectionType {
	return ConnUnknown
}
