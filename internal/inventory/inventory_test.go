package inventory

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/storage"
)

func newManager(t *testing.T) (*Manager, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "inventory.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewManager(db), db
}

func register(t *testing.T, m *Manager, name, ip string) *model.Device {
	t.Helper()
	d, err := m.RegisterDevice(DeviceInput{Hostname: name, IP: ip, Type: model.TypeAccess, SNMPVersion: "v2c", Community: "public"})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return d
}

func TestRegisterDevice(t *testing.T) {
	m, _ := newManager(t)
	core := register(t, m, "core1", "10.0.0.1")
	if core.ID == 0 || core.Status != model.StatusUnknown || core.Credentials.Community != "public" {
		t.Errorf("device = %+v", core)
	}

	tests := []struct {
		name string
		in   DeviceInput
		want error
	}{
		{"duplicate hostname", DeviceInput{Hostname: "core1", IP: "10.0.0.9"}, model.ErrConflict},
		{"missing hostname", DeviceInput{IP: "10.0.0.9"}, model.ErrInvalid},
		{"bad address", DeviceInput{Hostname: "x", IP: "not an ip"}, model.ErrInvalid},
		{"bad type", DeviceInput{Hostname: "x", IP: "10.0.0.9", Type: "mainframe"}, model.ErrInvalid},
		{"v3 without user", DeviceInput{Hostname: "x", IP: "10.0.0.9", SNMPVersion: "v3"}, model.ErrInvalid},
		{"unknown parent", DeviceInput{Hostname: "x", IP: "10.0.0.9", ParentID: model.Int64(99)}, model.ErrNotFound},
		{"unknown profile", DeviceInput{Hostname: "x", IP: "10.0.0.9", AlertProfileID: model.Int64(99)}, model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.RegisterDevice(tt.in); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	withPort, err := m.RegisterDevice(DeviceInput{Hostname: "lab", IP: "10.0.0.5:1161", ParentID: &core.ID})
	if err != nil || withPort.ParentID == nil || *withPort.ParentID != core.ID {
		t.Errorf("register with port and parent = %+v, %v", withPort, err)
	}
}

func TestUpdateDevice(t *testing.T) {
	m, _ := newManager(t)
	a := register(t, m, "acc1", "10.0.0.2")
	register(t, m, "acc2", "10.0.0.3")

	name, status := "acc1-renamed", model.StatusExcluded
	d, err := m.UpdateDevice(a.ID, DevicePatch{Hostname: &name, Status: &status})
	if err != nil {
		t.Fatalf("UpdateDevice: %v", err)
	}
	if d.Hostname != name || d.Status != model.StatusExcluded || d.IP != "10.0.0.2" || d.Credentials.Community != "public" {
		t.Errorf("updated = %+v", d)
	}

	taken := "acc2"
	if _, err := m.UpdateDevice(a.ID, DevicePatch{Hostname: &taken}); !errors.Is(err, model.ErrConflict) {
		t.Errorf("rename onto existing = %v", err)
	}
	empty := ""
	if _, err := m.UpdateDevice(a.ID, DevicePatch{Hostname: &empty}); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("empty hostname = %v", err)
	}
	if _, err := m.UpdateDevice(99, DevicePatch{}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown device = %v", err)
	}

	if err := m.DeleteDevice(a.ID); err != nil {
		t.Fatalf("DeleteDevice: %v", err)
	}
	if err := m.DeleteDevice(a.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("second delete = %v", err)
	}
}

func TestSetDeviceParentRejectsLoops(t *testing.T) {
	m, db := newManager(t)
	core := register(t, m, "core1", "10.0.0.1")
	dist := register(t, m, "dist1", "10.0.0.2")
	acc := register(t, m, "acc1", "10.0.0.3")

	if err := m.SetDeviceParent(dist.ID, &core.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.SetDeviceParent(acc.ID, &dist.ID); err != nil {
		t.Fatal(err)
	}

	if err := m.SetDeviceParent(core.ID, &acc.ID); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("loop through grandchild = %v", err)
	}
	if err := m.SetDeviceParent(core.ID, &core.ID); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("self parent = %v", err)
	}
	if err := m.SetDeviceParent(core.ID, model.Int64(99)); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown parent = %v", err)
	}

	if err := m.SetDeviceParent(acc.ID, nil); err != nil {
		t.Fatal(err)
	}
	got, _ := storage.NewDeviceStorage(db).Get(acc.ID)
	if got.ParentID != nil {
		t.Errorf("parent not cleared: %v", *got.ParentID)
	}
}

func TestGroups(t *testing.T) {
	m, _ := newManager(t)
	a := register(t, m, "acc1", "10.0.0.2")
	b := register(t, m, "acc2", "10.0.0.3")

	site, err := m.CreateGroup(GroupInput{Name: "site-a"})
	if err != nil {
		t.Fatal(err)
	}
	floor, err := m.CreateGroup(GroupInput{Name: "floor-1", ParentID: &site.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateGroup(GroupInput{Name: "site-a"}); !errors.Is(err, model.ErrConflict) {
		t.Errorf("duplicate group = %v", err)
	}
	if err := m.SetGroupParent(site.ID, &floor.ID); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("group loop = %v", err)
	}

	added, err := m.AddMembers(floor.ID, []int64{a.ID, b.ID})
	if err != nil || added != 2 {
		t.Fatalf("AddMembers = %d, %v", added, err)
	}
	if added, _ := m.AddMembers(floor.ID, []int64{a.ID}); added != 0 {
		t.Errorf("re-adding counted %d", added)
	}
	if _, err := m.AddMembers(floor.ID, []int64{99}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown device = %v", err)
	}

	removed, err := m.RemoveMembers(floor.ID, []int64{a.ID, 99})
	if err != nil || removed != 1 {
		t.Errorf("RemoveMembers = %d, %v", removed, err)
	}
	devices, err := m.GroupDevices(floor.ID)
	if err != nil || len(devices) != 1 || devices[0].ID != b.ID {
		t.Errorf("GroupDevices = %+v, %v", devices, err)
	}

	if err := m.DeleteGroup(site.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GroupDevices(site.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("deleted group = %v", err)
	}
}

func TestProfiles(t *testing.T) {
	m, db := newManager(t)
	d := register(t, m, "core1", "10.0.0.1")

	strict, err := m.CreateProfile(ProfileInput{Name: "strict", Thresholds: model.Thresholds{
		CPU: &model.Threshold{Warning: 50, Critical: 70, RecoveryBuffer: 5},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateProfile(ProfileInput{Name: "strict"}); !errors.Is(err, model.ErrConflict) {
		t.Errorf("duplicate profile = %v", err)
	}
	inverted := ProfileInput{Name: "inverted", Thresholds: model.Thresholds{
		CPU: &model.Threshold{Warning: 90, Critical: 80},
	}}
	if _, err := m.CreateProfile(inverted); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("critical below warning = %v", err)
	}

	if err := m.SetDeviceProfile(d.ID, &strict.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.SetDeviceProfile(d.ID, model.Int64(99)); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown profile = %v", err)
	}

	isDefault := true
	mem := model.Thresholds{Memory: &model.Threshold{Warning: 60, Critical: 80, RecoveryBuffer: 5}}
	updated, err := m.UpdateProfile(strict.ID, ProfilePatch{Thresholds: &mem, IsDefault: &isDefault})
	if err != nil {
		t.Fatal(err)
	}
	if !updated.IsDefault || updated.Thresholds.CPU != nil || updated.Thresholds.Memory.Warning != 60 {
		t.Errorf("updated = %+v", updated)
	}

	if err := m.DeleteProfile(strict.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := storage.NewDeviceStorage(db).Get(d.ID)
	if got.AlertProfileID != nil {
		t.Errorf("profile reference kept after delete: %v", *got.AlertProfileID)
	}
}

func TestRules(t *testing.T) {
	m, _ := newManager(t)
	a := register(t, m, "core1", "10.0.0.1")
	b := register(t, m, "core2", "10.0.0.2")

	tests := []struct {
		name string
		in   RuleInput
		want error
	}{
		{"hostname pattern", RuleInput{Type: model.RuleHostnamePattern, Pattern: "ap-*"}, nil},
		{"device pair", RuleInput{Type: model.RuleDevicePair, DeviceAID: &a.ID, DeviceBID: &b.ID}, nil},
		{"pattern missing", RuleInput{Type: model.RulePortPattern}, model.ErrInvalid},
		{"pair missing device", RuleInput{Type: model.RuleDevicePair, DeviceAID: &a.ID}, model.ErrInvalid},
		{"pair same device", RuleInput{Type: model.RuleDevicePair, DeviceAID: &a.ID, DeviceBID: &a.ID}, model.ErrInvalid},
		{"pair unknown device", RuleInput{Type: model.RuleDevicePair, DeviceAID: &a.ID, DeviceBID: model.Int64(99)}, model.ErrNotFound},
		{"unknown type", RuleInput{Type: "vlan", Pattern: "x"}, model.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreateRule(tt.in)
			if tt.want == nil && err != nil || tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	rules, err := m.Rules()
	if err != nil || len(rules) != 2 {
		t.Fatalf("Rules = %+v, %v", rules, err)
	}
	if err := m.DeleteRule(rules[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteRule(rules[0].ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("second delete = %v", err)
	}
}
