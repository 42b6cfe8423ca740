package filemonitor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// keystore holds the server key pair and refreshes it from disk when
// the files change, so certificate rotation needs no restart.
type keystore struct {
	mu       sync.RWMutex
	pair     *tls.Certificate
	certPath string
	keyPath  string
}

type certGetter = func(*tls.ClientHelloInfo) (*tls.Certificate, error)

// NewKeystore loads the key pair at the given paths.
func NewKeystore(tlsCrt, tlsKey string) (*keystore, error) {
	pair, err := tls.LoadX509KeyPair(tlsCrt, tlsKey)
	if err != nil {
		return nil, err
	}
	return &keystore{
		pair:     &pair,
		certPath: tlsCrt,
		keyPath:  tlsKey,
	}, nil
}

// HandleEvent fits the watcher's UpdateFn and reloads the pair on
// create and write events in the certificate directory.
func (k *keystore) HandleEvent(logger *logrus.Logger, event fsnotify.Event) {
	switch event.Op {
	case fsnotify.Create, fsnotify.Write:
		logger.Debugf("certificate event: %v", event.Name)

		if err := k.reload(); err != nil {
			// the cert and key rarely land in the same instant; the
			// pair is only replaced once both halves agree
			logger.Debugf("key pair incomplete: %v", err)
			return
		}
		pair, _ := k.GetCertificate(nil)
		info, err := x509.ParseCertificate(pair.Certificate[0])
		if err != nil {
			logger.Debugf("reloaded pair does not parse: %v", err)
			return
		}
		logger.Debugf("key pair rotated: subject=%v notBefore=%v notAfter=%v", info.Subject, info.NotBefore, info.NotAfter)
	}
}

func (k *keystore) reload() error {
	pair, err := tls.LoadX509KeyPair(k.certPath, k.keyPath)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.pair = &pair
	k.mu.Unlock()
	return nil
}

// GetCertificate fits the tls.Config hook of the same name.
func (k *keystore) GetCertificate(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.pair, nil
}

// GetCertRotationFn monitors the directory holding the key pair and
// returns a tls.Config GetCertificate hook that always serves the
// latest pair.
func GetCertRotationFn(logger *logrus.Logger, tlsCertPath, tlsKeyPath string) (certGetter, error) {
	if filepath.Dir(tlsCertPath) != filepath.Dir(tlsKeyPath) {
		return nil, fmt.Errorf("certificate and key must be in the same directory: %v vs %v", tlsCertPath, tlsKeyPath)
	}

	ks, err := NewKeystore(tlsCertPath, tlsKeyPath)
	if err != nil {
		return nil, err
	}
	watcher, err := NewWatch(logger, []string{filepath.Dir(tlsCertPath)}, ks.HandleEvent)
	if err != nil {
		return nil, err
	}
	watcher.Run(context.Background())

	return ks.GetCertificate, nil
}
