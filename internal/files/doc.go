// Package files resolves and enumerates input files under a base directory.
//
// Discovery lists the files the loader understands, sorted oldest first,
// and can filter by glob pattern. Manager confines caller supplied names
// to its base directory and stores uploaded content there.
//
//	discovery := files.NewDiscovery(cfg.Paths.DataDir)
//	inputs, err := discovery.FindInputs("")
//
//	manager := files.NewManager(cfg.Paths.DataDir, logger)
//	path, err := manager.Resolve("line1/run.csv")
package files
