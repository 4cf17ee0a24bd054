// Package topology discovers how many logical cores workers can be pinned to.
//
// A [Probe] runs an OS topology query (lscpu by default), waits for it to exit,
// and parses the complete output as colon-separated key/value lines. Output is
// never parsed before the query process has finished.
//
// The resolved core count is the larger of the physical count ("CPU(s)") and
// the count derived from the NUMA node-0 CPU list ("NUMA node0 CPU(s)"). A
// resolved count of zero is a [errors.TopologyError]; callers fall back to a
// non-affinity execution mode instead of retrying.
package topology
