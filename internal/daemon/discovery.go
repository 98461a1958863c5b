package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/notify"
	"github.com/user/topomon/internal/snmp"
	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/util"
)

// Sweeper probes configured subnets for SNMP-speaking hosts and adds the
// unknown ones as devices.
type Sweeper struct {
	devices  *storage.DeviceStorage
	prober   Prober
	notifier notify.Publisher
	cfg      util.DiscoveryConfig
	snmp     util.SNMPConfig
}

// NewSweeper creates a sweeper for one configuration.
func NewSweeper(db *storage.DB, prober Prober, notifier notify.Publisher, cfg *util.Config) *Sweeper {
	return &Sweeper{
		devices:  storage.NewDeviceStorage(db),
		prober:   prober,
		notifier: notifier,
		cfg:      cfg.Discovery,
		snmp:     cfg.SNMP,
	}
}

// Sweep scans every configured subnet. An invalid subnet is logged and
// skipped.
func (s *Sweeper) Sweep(ctx context.Context) []model.ScanResult {
	if len(s.cfg.Subnets) == 0 {
		util.Debug("No subnets configured for discovery")
		return nil
	}
	util.Info("Discovery sweep starting for %d subnets", len(s.cfg.Subnets))

	var results []model.ScanResult
	discovered, added := 0, 0
	for _, subnet := range s.cfg.Subnets {
		if ctx.Err() != nil {
			break
		}
		res, err := s.ScanSubnet(ctx, subnet)
		if err != nil {
			util.Error("Skipping subnet %s: %v", subnet, err)
			continue
		}
		results = append(results, res)
		discovered += res.Discovered
		added += res.Added
	}
	util.Info("Discovery sweep complete: discovered=%d, added=%d", discovered, added)
	return results
}

// ScanSubnet probes up to MaxHosts addresses of cidr in batches of
// BatchSize, paced by ProbesPerSecond.
func (s *Sweeper) ScanSubnet(ctx context.Context, cidr string) (model.ScanResult, error) {
	res := model.ScanResult{Subnet: cidr}
	hosts, err := expandCIDR(cidr, s.cfg.MaxHosts)
	if err != nil {
		return res, fmt.Errorf("invalid CIDR: %w", err)
	}
	util.Info("Scanning subnet %s (%d hosts)", cidr, len(hosts))

	var limiter *rate.Limiter
	if s.cfg.ProbesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.ProbesPerSecond), max(1, s.cfg.BatchSize))
	}
	batch := max(1, s.cfg.BatchSize)

	var mu sync.Mutex
	for i := 0; i < len(hosts); i += batch {
		end := min(i+batch, len(hosts))
		g, gctx := errgroup.WithContext(ctx)
		for _, ip := range hosts[i:end] {
			g.Go(func() error {
				if limiter != nil {
					if err := limiter.Wait(gctx); err != nil {
						return nil
					}
				}
				found, isNew := s.probeHost(gctx, ip)
				mu.Lock()
				defer mu.Unlock()
				res.Probed++
				if found {
					res.Discovered++
				}
				if isNew {
					res.Added++
				}
				return nil
			})
		}
		g.Wait()
		if ctx.Err() != nil {
			break
		}
	}
	return res, nil
}

// probeHost asks ip for its identity and registers it when unknown.
func (s *Sweeper) probeHost(ctx context.Context, ip string) (found, added bool) {
	cred := DefaultCredentials(s.snmp)
	id := s.prober.GetIdentity(ctx, snmp.Target{Address: ip, Credentials: cred, Timeout: s.cfg.ProbeTimeout})
	if id == nil {
		return false, false
	}

	if _, err := s.devices.GetByIP(ip); err == nil {
		return true, false
	} else if !errors.Is(err, model.ErrNotFound) {
		util.Warn("Failed to look up %s: %v", ip, err)
		return true, false
	}

	now := time.Now().UTC()
	dev := &model.Device{
		Hostname:     id.Name,
		IP:           ip,
		Vendor:       id.Vendor,
		Credentials:  model.Credentials{Version: cred.Version, Community: cred.Community, V3User: cred.V3User},
		Type:         model.TypeAccess,
		AutoDiscover: true,
		Status:       model.StatusManaged,
		LastSeen:     &now,
	}
	if err := s.devices.Create(dev); err != nil {
		util.Warn("Failed to add discovered device %s (%s): %v", id.Name, ip, err)
		return true, false
	}
	util.Info("Discovered new device: %s (%s)", dev.Hostname, ip)
	if s.notifier != nil {
		s.notifier.Publish(notify.DiscoveryEvent(model.AlertNewDeviceDiscovered, *dev, map[string]interface{}{"source": "subnet_scan"}))
	}
	return true, true
}

// expandCIDR lists the host addresses of an IPv4 CIDR, without network
// and broadcast addresses, capped at limit when it is positive.
func expandCIDR(cidr string, limit int) ([]string, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	if ip.To4() == nil {
		return nil, fmt.Errorf("%s is not an IPv4 subnet", cidr)
	}

	ones, bits := ipnet.Mask.Size()
	hostBits := bits - ones

	var ips []string
	cur := ip.Mask(ipnet.Mask).To4()
	if hostBits >= 2 {
		incIP(cur)
	}
	for ; ipnet.Contains(cur); incIP(cur) {
		if hostBits >= 2 && isBroadcast(cur, ipnet) {
			break
		}
		ips = append(ips, cur.String())
		if limit > 0 && len(ips) >= limit {
			break
		}
	}
	return ips, nil
}

func isBroadcast(ip net.IP, n *net.IPNet) bool {
	for i := range ip {
		if ip[i]|n.Mask[i] != 0xff {
			return false
		}
	}
	return true
}

func incIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}

// DiscoveryLoop owns the periodic discovery sweep. Start replaces any
// running loop; Stop cancels it.
type DiscoveryLoop struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}
	sweeper *Sweeper
	last    []model.ScanResult
	lastRun time.Time
}

// NewDiscoveryLoop creates a stopped loop.
func NewDiscoveryLoop() *DiscoveryLoop {
	return &DiscoveryLoop{}
}

// Start runs sweeper immediately and then every interval until Stop or
// until parent ends.
func (l *DiscoveryLoop) Start(parent context.Context, sweeper *Sweeper, interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	trigger := make(chan struct{}, 1)
	l.cancel, l.done, l.trigger, l.sweeper = cancel, done, trigger, sweeper

	util.Info("Discovery loop starting (interval: %s)", interval)
	go func() {
		defer close(done)
		timer := time.NewTimer(0)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			case <-trigger:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
			results := sweeper.Sweep(ctx)
			if ctx.Err() != nil {
				return
			}
			l.record(results)
			timer.Reset(interval)
		}
	}()
}

func (l *DiscoveryLoop) record(results []model.ScanResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = results
	l.lastRun = time.Now()
}

// Stop cancels the loop. In-flight probes end with their own timeout.
func (l *DiscoveryLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		util.Info("Discovery loop stopped")
	}
	l.stopLocked()
}

// StopAndWait cancels the loop and waits up to timeout for it to exit.
func (l *DiscoveryLoop) StopAndWait(timeout time.Duration) {
	l.mu.Lock()
	done := l.stopLocked()
	l.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
		util.Warn("Discovery loop did not exit within %s", timeout)
	}
}

func (l *DiscoveryLoop) stopLocked() chan struct{} {
	done := l.done
	if l.cancel != nil {
		l.cancel()
	}
	l.cancel, l.done, l.trigger, l.sweeper = nil, nil, nil, nil
	return done
}

// Running reports whether a loop is active.
func (l *DiscoveryLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Trigger requests an immediate sweep. It returns false when the loop is
// stopped.
func (l *DiscoveryLoop) Trigger() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.trigger == nil {
		return false
	}
	select {
	case l.trigger <- struct{}{}:
	default:
	}
	return true
}

// LastResults returns the results of the most recent sweep.
func (l *DiscoveryLoop) LastResults() ([]model.ScanResult, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.lastRun
}
