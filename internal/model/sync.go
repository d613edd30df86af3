package model

// DefaultSyncFilePath is the blob path used when settings leave it empty.
const DefaultSyncFilePath = "famlingo-family-data.json"

// SnapshotVersion is the format version written to the remote blob.
const SnapshotVersion = "1.0"

// SyncSettings are the remote-store credentials entered on a device.
type SyncSettings struct {
	Token    string `json:"token"`
	Owner    string `json:"owner"`
	Repo     string `json:"repo"`
	FilePath string `json:"filePath"`
}

// Configured reports whether remote sync can run with these settings.
func (s *SyncSettings) Configured() bool {
	return s != nil && s.Token != "" && s.Owner != "" && s.Repo != ""
}

// Path returns the blob path, falling back to the default.
func (s *SyncSettings) Path() string {
	if s.FilePath == "" {
		return DefaultSyncFilePath
	}
	return s.FilePath
}

// Snapshot is the whole remote blob. Users duplicates Family.Users for
// clients that read the top-level list.
type Snapshot struct {
	Version    string   `json:"version"`
	AppVersion string   `json:"appVersion"`
	LastSync   string   `json:"lastSync"`
	Family     *Family  `json:"family"`
	Users      []Member `json:"users"`
	Phrases    []Phrase `json:"phrases,omitempty"`
	Revision   string   `json:"-"`
}

// Members returns the member list a snapshot carries.
func (s *Snapshot) Members() []Member {
	if s == nil {
		return nil
	}
	if len(s.Users) > 0 {
		return s.Users
	}
	if s.Family != nil {
		return s.Family.Users
	}
	return nil
}

// PhrasesByMember groups the flattened phrase list by owner.
func (s *Snapshot) PhrasesByMember() map[string][]Phrase {
	out := make(map[string][]Phrase)
	if s == nil {
		return out
	}
	for _, p := range s.Phrases {
		out[p.MemberID] = append(out[p.MemberID], p)
	}
	return out
}

// DeviceSettings is the device record the backend keeps independent of login.
type DeviceSettings struct {
	DeviceID       string `json:"deviceId"`
	GitHubToken    string `json:"githubToken"`
	GitHubOwner    string `json:"githubOwner"`
	GitHubRepo     string `json:"githubRepo"`
	GitHubFilePath string `json:"githubFilePath"`
	FamilyID       string `json:"familyId,omitempty"`
}

// SyncSettings converts the device record into local sync settings.
func (d *DeviceSettings) SyncSettings() *SyncSettings {
	return &SyncSettings{
		Token:    d.GitHubToken,
		Owner:    d.GitHubOwner,
		Repo:     d.GitHubRepo,
		FilePath: d.GitHubFilePath,
	}
}
