package utils

import (
	"image"
	"sync/atomic"
	"testing"

	"go.viam.com/test"
)

func TestGroupWorkParallel(t *testing.T) {
	for _, total := range []int{0, 1, 3, 17, 1000} {
		visited := make([]int32, total)
		GroupWorkParallel(total, func(groupNum, groupSize, from, to int) MemberWorkFunc {
			return func(memberNum, workNum int) {
				atomic.AddInt32(&visited[workNum], 1)
			}
		})
		for i := range visited {
			test.That(t, visited[i], test.ShouldEqual, int32(1))
		}
	}
}

func TestParallelForEachPixel(t *testing.T) {
	size := image.Point{37, 23}
	var count int64
	seen := make([]int32, size.X*size.Y)
	ParallelForEachPixel(size, func(x, y int) {
		atomic.AddInt64(&count, 1)
		atomic.AddInt32(&seen[y*size.X+x], 1)
	})
	test.That(t, count, test.ShouldEqual, int64(size.X*size.Y))
	for _, s := range seen {
		test.That(t, s, test.ShouldEqual, int32(1))
	}
}
