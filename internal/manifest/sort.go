// SPDX-License-Identifier: MIT

package manifest

import "sort"

// SortTracks orders tracks canonically: container family, then codec family,
// then descending bitrate, then original manifest order. The order is total,
// so re-parsing identical input always yields the identical sequence.
func SortTracks(tracks []Track) {
	sort.SliceStable(tracks, func(i, j int) bool {
		a, b := &tracks[i], &tracks[j]

		af := containerFamily(a.Container)
		bf := containerFamily(b.Container)
		ar := rankOf(containerFamilyRank, af, 50)
		br := rankOf(containerFamilyRank, bf, 50)
		if ar != br {
			return ar < br
		}
		if ar == 50 && af != bf {
			return af < bf
		}

		ac := CodecFamily(a.Codec)
		bc := CodecFamily(b.Codec)
		acr := rankOf(codecFamilyRank, ac, 50)
		bcr := rankOf(codecFamilyRank, bc, 50)
		if acr != bcr {
			return acr < bcr
		}
		if acr == 50 && ac != bc {
			return ac < bc
		}

		if a.Bitrate != b.Bitrate {
			return a.Bitrate > b.Bitrate
		}

		return a.StreamIndex < b.StreamIndex
	})
}
