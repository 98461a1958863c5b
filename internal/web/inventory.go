package web

import (
	"net/http"

	"github.com/user/topomon/internal/inventory"
)

type parentRequest struct {
	ParentID *int64 `json:"parent_id"`
}

type profileRequest struct {
	ProfileID *int64 `json:"profile_id"`
}

type membersRequest struct {
	DeviceIDs []int64 `json:"device_ids" validate:"required,min=1,dive,gt=0"`
}

// APICreateDevice registers a device by hand.
func (h *Handlers) APICreateDevice(w http.ResponseWriter, r *http.Request) {
	var in inventory.DeviceInput
	if !decodeJSON(w, r, &in) {
		return
	}
	d, err := h.inventory.RegisterDevice(in)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, d)
}

// APIUpdateDevice changes the fields present in the body.
func (h *Handlers) APIUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p inventory.DevicePatch
	if !decodeJSON(w, r, &p) {
		return
	}
	d, err := h.inventory.UpdateDevice(id, p)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, d)
}

// APIDeleteDevice removes a device.
func (h *Handlers) APIDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.inventory.DeleteDevice(id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// APISetDeviceParent sets or clears (null) a device's parent.
func (h *Handlers) APISetDeviceParent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req parentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.inventory.SetDeviceParent(id, req.ParentID); err != nil {
		writeStoreError(w, err)
		return
	}
	h.writeDevice(w, id)
}

// APISetDeviceProfile assigns or clears (null) a device's alert profile.
func (h *Handlers) APISetDeviceProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.inventory.SetDeviceProfile(id, req.ProfileID); err != nil {
		writeStoreError(w, err)
		return
	}
	h.writeDevice(w, id)
}

func (h *Handlers) writeDevice(w http.ResponseWriter, id int64) {
	d, err := h.devices.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, d)
}

// APICreateGroup creates a device group.
func (h *Handlers) APICreateGroup(w http.ResponseWriter, r *http.Request) {
	var in inventory.GroupInput
	if !decodeJSON(w, r, &in) {
		return
	}
	g, err := h.inventory.CreateGroup(in)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, g)
}

// APIDeleteGroup removes a group.
func (h *Handlers) APIDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.inventory.DeleteGroup(id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// APISetGroupParent nests a group or makes it top-level (null).
func (h *Handlers) APISetGroupParent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req parentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.inventory.SetGroupParent(id, req.ParentID); err != nil {
		writeStoreError(w, err)
		return
	}
	g, err := h.groups.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, g)
}

// APIGetGroupDevices lists the direct members of a group.
func (h *Handlers) APIGetGroupDevices(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	devices, err := h.inventory.GroupDevices(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"devices": nonNil(devices), "total": len(devices)})
}

// APIAddGroupDevices adds devices to a group.
func (h *Handlers) APIAddGroupDevices(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req membersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	added, err := h.inventory.AddMembers(id, req.DeviceIDs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, map[string]int{"added": added})
}

// APIRemoveGroupDevices takes devices out of a group.
func (h *Handlers) APIRemoveGroupDevices(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req membersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	removed, err := h.inventory.RemoveMembers(id, req.DeviceIDs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, map[string]int{"removed": removed})
}

// APIGetProfiles lists alert profiles.
func (h *Handlers) APIGetProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.inventory.Profiles()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, nonNil(profiles))
}

// APIGetProfile returns one alert profile.
func (h *Handlers) APIGetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.inventory.Profile(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, p)
}

// APICreateProfile creates an alert profile.
func (h *Handlers) APICreateProfile(w http.ResponseWriter, r *http.Request) {
	var in inventory.ProfileInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.inventory.CreateProfile(in)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, p)
}

// APIUpdateProfile changes the fields present in the body.
func (h *Handlers) APIUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch inventory.ProfilePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	p, err := h.inventory.UpdateProfile(id, patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, p)
}

// APIDeleteProfile removes an alert profile.
func (h *Handlers) APIDeleteProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.inventory.DeleteProfile(id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// APIGetRules lists topology exclude rules.
func (h *Handlers) APIGetRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.inventory.Rules()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, nonNil(rules))
}

// APICreateRule creates a topology exclude rule.
func (h *Handlers) APICreateRule(w http.ResponseWriter, r *http.Request) {
	var in inventory.RuleInput
	if !decodeJSON(w, r, &in) {
		return
	}
	rule, err := h.inventory.CreateRule(in)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, rule)
}

// APIDeleteRule removes a topology exclude rule.
func (h *Handlers) APIDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.inventory.DeleteRule(id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
