// Package merge reconciles the local family and phrase caches with the
// remote snapshot.
//
// The policy is deliberately coarse: members are matched by id and the
// copy with the later lastPractice wins as a whole, so a profile edit made
// on one device can be lost to a practice session recorded on another.
package merge

import "github.com/dukerupert/famlingo/internal/model"

// PracticedAfter reports whether a is strictly later than b. Timestamps are
// ISO-8601 strings and compare lexicographically. A missing timestamp sorts
// before any present one.
func PracticedAfter(a, b *string) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return *a > *b
}

// Family merges the local family with a remote snapshot. The result never
// aliases either input.
func Family(local *model.Family, remote *model.Snapshot) *model.Family {
	if remote == nil {
		return local.Clone()
	}

	out := local.Clone()
	if out == nil {
		out = &model.Family{}
	}
	if !out.Initialized() && remote.Family != nil {
		out.ID = remote.Family.ID
		out.Name = remote.Family.Name
		out.Created = remote.Family.Created
	}

	var localUsers []model.Member
	if local != nil {
		localUsers = local.Users
	}
	out.Users = Members(localUsers, remote.Members())
	return out
}

// Members unions two member lists by id. Remote members come first, then
// local-only members in local order. A member on both sides keeps the remote
// copy unless the local one practiced strictly later. Nobody is dropped, so
// the result can hold more than model.MaxUsers members.
func Members(local, remote []model.Member) []model.Member {
	localByID := make(map[string]*model.Member, len(local))
	for i := range local {
		if _, ok := localByID[local[i].ID]; !ok {
			localByID[local[i].ID] = &local[i]
		}
	}

	seen := make(map[string]bool, len(local)+len(remote))
	out := make([]model.Member, 0, len(local)+len(remote))

	for _, r := range remote {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		if l, ok := localByID[r.ID]; ok && PracticedAfter(l.Stats.LastPractice, r.Stats.LastPractice) {
			out = append(out, l.Clone())
			continue
		}
		out = append(out, r.Clone())
	}
	for _, l := range local {
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		out = append(out, l.Clone())
	}
	return out
}

// Phrases unions two phrase lists by id. Remote entries are authoritative and
// come first, then local-only entries in local order.
func Phrases(local, remote []model.Phrase) []model.Phrase {
	seen := make(map[string]bool, len(local)+len(remote))
	out := make([]model.Phrase, 0, len(local)+len(remote))
	for _, list := range [][]model.Phrase{remote, local} {
		for _, p := range list {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	return out
}
