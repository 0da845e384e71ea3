// Command trajcluster groups back-trajectories into representative clusters.
//
// Usage:
//
//	trajcluster run samples.csv -o labeled.csv --metric angle -k 6 --stratify season
//	trajcluster serve
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
