package domain

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// ClusterMean is the mean position of one cluster at one hour increment.
type ClusterMean struct {
	Stratum string  `json:"stratum"`
	Cluster int     `json:"cluster"`
	HourInc int     `json:"hour_inc"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	N       int     `json:"n"`
}

// ClusterShare is the number of trajectories in a cluster and their share of
// the stratum, in percent rounded to one decimal.
type ClusterShare struct {
	Stratum      string  `json:"stratum"`
	Cluster      int     `json:"cluster"`
	Trajectories int     `json:"trajectories"`
	Percent      float64 `json:"percent"`
}

// Summary is a read-only view derived from a labeled dataset for plotting.
type Summary struct {
	Strata []string       `json:"strata"`
	Means  []ClusterMean  `json:"means"`
	Shares []ClusterShare `json:"shares"`
}

type meanKey struct {
	stratum string
	cluster int
	hourInc int
}

type shareKey struct {
	stratum string
	cluster int
}

// Summarize computes per stratum, cluster and hour increment mean positions,
// and per cluster trajectory shares. Samples with a zero cluster label are
// ignored. The input is not modified.
func Summarize(labeled []LabeledSample) Summary {
	lats := make(map[meanKey][]float64)
	lons := make(map[meanKey][]float64)
	members := make(map[shareKey]map[int64]struct{})
	perStratum := make(map[string]map[int64]struct{})
	strataRank := make(map[string]int)
	var strata []string

	for _, s := range labeled {
		if s.Cluster == 0 {
			continue
		}
		if _, ok := strataRank[s.Stratum]; !ok {
			strataRank[s.Stratum] = len(strata)
			strata = append(strata, s.Stratum)
			perStratum[s.Stratum] = make(map[int64]struct{})
		}
		mk := meanKey{s.Stratum, s.Cluster, s.HourInc}
		lats[mk] = append(lats[mk], s.Lat)
		lons[mk] = append(lons[mk], s.Lon)

		sk := shareKey{s.Stratum, s.Cluster}
		if members[sk] == nil {
			members[sk] = make(map[int64]struct{})
		}
		id := s.Date.UnixNano()
		members[sk][id] = struct{}{}
		perStratum[s.Stratum][id] = struct{}{}
	}

	out := Summary{
		Strata: strata,
		Means:  make([]ClusterMean, 0, len(lats)),
		Shares: make([]ClusterShare, 0, len(members)),
	}
	for k, la := range lats {
		out.Means = append(out.Means, ClusterMean{
			Stratum: k.stratum,
			Cluster: k.cluster,
			HourInc: k.hourInc,
			Lat:     stat.Mean(la, nil),
			Lon:     stat.Mean(lons[k], nil),
			N:       len(la),
		})
	}
	for k, ids := range members {
		total := len(perStratum[k.stratum])
		out.Shares = append(out.Shares, ClusterShare{
			Stratum:      k.stratum,
			Cluster:      k.cluster,
			Trajectories: len(ids),
			Percent:      math.Round(1000*float64(len(ids))/float64(total)) / 10,
		})
	}

	slices.SortFunc(out.Means, func(a, b ClusterMean) int {
		return cmp.Or(
			cmp.Compare(strataRank[a.Stratum], strataRank[b.Stratum]),
			cmp.Compare(a.Cluster, b.Cluster),
			cmp.Compare(a.HourInc, b.HourInc),
		)
	})
	slices.SortFunc(out.Shares, func(a, b ClusterShare) int {
		return cmp.Or(
			cmp.Compare(strataRank[a.Stratum], strataRank[b.Stratum]),
			cmp.Compare(a.Cluster, b.Cluster),
		)
	})
	return out
}
