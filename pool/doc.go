// Package pool
// Author: momentics <momentics@gmail.com>
//
// Size-classed buffer pooling for frame relay I/O, segmented by NUMA-node
// preference. See bufferpool.go and base_bufferpool.go for implementation
// details.
package pool
