package reconcile

import (
	"git.netflux.io/rob/mtxdash/internal/domain"
)

// Sources holds the three views of the configured paths. Each slice is in
// the order it was reported by its source.
type Sources struct {
	Live    []domain.LivePath
	Stored  []domain.PathRecord
	Configs []domain.PathConf
}

// keyed is a name-keyed map which remembers insertion order.
type keyed[T any] struct {
	order []string
	items map[string]T
}

// newKeyed builds a keyed map from items. The catch-all path is skipped, and
// the first item with a given name wins.
func newKeyed[T any](items []T, name func(T) string) keyed[T] {
	k := keyed[T]{items: make(map[string]T, len(items))}
	for _, item := range items {
		n := name(item)
		if n == domain.CatchAllPathName {
			continue
		}
		if _, ok := k.items[n]; ok {
			continue
		}
		k.order = append(k.order, n)
		k.items[n] = item
	}

	return k
}

func (k keyed[T]) get(name string) (T, bool) {
	item, ok := k.items[name]
	return item, ok
}

// Merge reconciles the live, stored and configured views into a single list
// with exactly one row per path name.
//
// Live paths come first, followed by stored paths which are not live, then
// paths which are only known to the media server configuration. When a name
// appears in more than one view, attributes are taken from the configuration
// first, then the live path, then the stored record.
func Merge(src Sources) []domain.CombinedPath {
	live := newKeyed(src.Live, func(p domain.LivePath) string { return p.Name })
	stored := newKeyed(src.Stored, func(r domain.PathRecord) string { return r.Name() })
	configs := newKeyed(src.Configs, func(c domain.PathConf) string { return c.Name })

	rows := make([]domain.CombinedPath, 0, len(live.order)+len(stored.order)+len(configs.order))
	seen := make(map[string]struct{}, cap(rows))

	for _, name := range live.order {
		livePath, _ := live.get(name)
		conf, hasConf := configs.get(name)
		record, isInDB := stored.get(name)

		row := domain.CombinedPath{
			Name:          name,
			Origin:        domain.PathOriginLive,
			IsActive:      true,
			IsInDB:        isInDB,
			Ready:         livePath.Ready,
			Readers:       len(livePath.Readers),
			BytesReceived: livePath.BytesReceived,
		}

		switch {
		case hasConf:
			applyConf(&row, conf)
			if row.Source.Type == nil && livePath.Source != nil {
				sourceType := livePath.Source.Type
				row.Source.Type = &sourceType
				row.Kind = liveKind(livePath.Source)
			}
		case livePath.Source != nil:
			sourceType := livePath.Source.Type
			row.Source.Type = &sourceType
			row.Kind = liveKind(livePath.Source)
			row.Record = isInDB && record.Conf.IsRecording()
		case isInDB:
			applyConf(&row, record.Conf)
		default:
			row.Kind = domain.PathKindSession
		}

		rows = append(rows, row)
		seen[name] = struct{}{}
	}

	for _, name := range stored.order {
		if _, ok := seen[name]; ok {
			continue
		}

		record, _ := stored.get(name)
		row := domain.CombinedPath{
			Name:   name,
			Origin: domain.PathOriginDB,
			IsInDB: true,
		}
		if conf, ok := configs.get(name); ok {
			applyConf(&row, conf)
		} else {
			applyConf(&row, record.Conf)
		}

		rows = append(rows, row)
		seen[name] = struct{}{}
	}

	for _, name := range configs.order {
		if _, ok := seen[name]; ok {
			continue
		}

		conf, _ := configs.get(name)
		row := domain.CombinedPath{Name: name, Origin: domain.PathOriginConfig}
		applyConf(&row, conf)

		rows = append(rows, row)
		seen[name] = struct{}{}
	}

	return rows
}

func applyConf(row *domain.CombinedPath, conf domain.PathConf) {
	if conf.Source != nil && *conf.Source != "" {
		source := *conf.Source
		row.Source.Type = &source
	}
	row.Kind = conf.Kind()
	row.Record = conf.IsRecording()
}

// liveKind classifies a live path with no configuration of its own. Pull
// sources are reported with a type ending in "Source".
func liveKind(source *domain.SourceRef) domain.PathKind {
	if source == nil || source.IsPush() {
		return domain.PathKindSession
	}

	return domain.PathKindProxy
}
