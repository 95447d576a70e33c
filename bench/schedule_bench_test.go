package bench

import (
	"fmt"
	"testing"

	"github.com/yyyoichi/cipherseal/internal/keygen"
	"github.com/yyyoichi/cipherseal/internal/schedule"
)

func BenchmarkPositions(b *testing.B) {
	key := []byte("benchmark key")
	for _, size := range [][2]int{{1280, 720}, {1920, 1080}, {3840, 2160}} {
		capacity := size[0] * size[1] * 3
		salt := keygen.ImageSalt(size[0], size[1], 3)
		for _, count := range []int{264, 8456, 65536} {
			b.Run(fmt.Sprintf("%dx%d_%d", size[0], size[1], count), func(b *testing.B) {
				for b.Loop() {
					if _, err := schedule.Positions(key, salt, capacity, count); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
