package prompt

import (
	"math/rand/v2"
)

// samplerStream 固定的第二个 PCG 种子，使每个 idx 对应唯一且稳定的随机流
const samplerStream uint64 = 0x6e616e6f63686174

// Sample 以 idx 为种子，从 pool 中有放回地均匀抽取 k 条示例
// 相同的 idx、pool、k 总是得到相同结果，便于单独复现某个失败任务
// 每次调用都新建随机流，不与其他任务共享状态
func Sample(idx int, pool []string, k int) []string {
	if len(pool) == 0 || k <= 0 {
		return []string{}
	}
	rng := rand.New(rand.NewPCG(uint64(idx), samplerStream))
	out := make([]string, k)
	for i := range out {
		out[i] = pool[rng.IntN(len(pool))]
	}
	return out
}
