package sitegen

import (
	"sort"

	"github.com/clean-dependency-project/winiso/internal/storage"
	"github.com/clean-dependency-project/winiso/internal/version"
)

// BuildModel transforms stored data into a SiteModel with deterministic sorting.
// Sorting order: release (newest first), arch (matrix order), language (asc).
func BuildModel(data *SiteData) *SiteModel {
	model := &SiteModel{Releases: []ReleaseModel{}, Published: []PublishedModel{}}
	if data == nil {
		return model
	}

	type archGroup struct {
		referer  string
		editions []EditionModel
	}
	releaseMap := make(map[string]map[string]*archGroup)
	archOrder := make(map[string][]string)

	for _, entry := range data.Entries {
		if releaseMap[entry.Release] == nil {
			releaseMap[entry.Release] = make(map[string]*archGroup)
		}
		group, ok := releaseMap[entry.Release][entry.Arch]
		if !ok {
			group = &archGroup{referer: entry.Referer}
			releaseMap[entry.Release][entry.Arch] = group
			archOrder[entry.Release] = append(archOrder[entry.Release], entry.Arch)
		}
		group.editions = append(group.editions, buildEdition(entry, data.Resolutions))
	}

	labels := make([]string, 0, len(releaseMap))
	for label := range releaseMap {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range version.SortReleasesDescending(labels) {
		release := ReleaseModel{Name: label, Slug: releaseSlug(label)}
		for _, arch := range archOrder[label] {
			group := releaseMap[label][arch]
			sort.SliceStable(group.editions, func(i, j int) bool {
				if group.editions[i].Language != group.editions[j].Language {
					return group.editions[i].Language < group.editions[j].Language
				}
				return group.editions[i].SKU < group.editions[j].SKU
			})
			release.Archs = append(release.Archs, ArchModel{
				Arch:     arch,
				Referer:  group.referer,
				Editions: group.editions,
			})
		}
		model.Releases = append(model.Releases, release)
	}

	for _, rel := range data.Releases {
		model.Published = append(model.Published, buildPublished(rel))
	}
	sort.SliceStable(model.Published, func(i, j int) bool {
		return model.Published[i].CreatedAt.After(model.Published[j].CreatedAt)
	})

	return model
}

// buildEdition joins a matrix row with its latest resolution.
func buildEdition(entry *storage.MatrixEntry, resolutions map[string]*storage.Resolution) EditionModel {
	edition := EditionModel{
		Language:         entry.Language,
		SKU:              entry.SKU,
		ProductEditionID: entry.ProductEditionID,
	}
	if entry.Checksum != nil {
		edition.Checksum = *entry.Checksum
	}

	res, ok := resolutions[storage.ResolutionKey(entry.SKU, entry.Arch)]
	if !ok || res == nil {
		return edition
	}
	edition.Status = res.Status
	edition.URL = res.URL
	edition.Filename = res.Filename
	edition.Error = res.Error
	edition.Expiration = res.Expiration
	edition.ResolvedAt = res.ResolvedAt
	return edition
}

// buildPublished converts a stored release into its page model.
func buildPublished(rel ReleaseWithAssets) PublishedModel {
	published := PublishedModel{
		Tag:        rel.Release.ReleaseTag,
		Name:       rel.Release.Name,
		URL:        rel.Release.ReleaseURL,
		EntryCount: rel.Release.EntryCount,
		CreatedAt:  rel.Release.CreatedAt,
	}
	for _, f := range rel.Assets.Files {
		published.Files = append(published.Files, FileModel{
			Type:     f.Type,
			Filename: f.Filename,
			Size:     f.Size,
			SHA256:   f.SHA256,
			URL:      f.URL,
		})
	}
	sort.Slice(published.Files, func(i, j int) bool {
		return published.Files[i].Filename < published.Files[j].Filename
	})
	return published
}
