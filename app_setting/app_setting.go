package app_setting

import (
	"io/ioutil"
	"log"

	"gopkg.in/yaml.v2"
)

// This is the archiver config for the sweep daemon execution.
type ArchiverAppSetting struct {
	// Run a full sweep cycle every other interval.
	SWEEP_INTERVAL_SECOND int64 `yaml:"SWEEP_INTERVAL_SECOND"`
	// Deadline for a single sweep cycle. A cycle cut off mid-way is safe,
	// already committed mappings stay committed and the rest retries from
	// their unchanged checkpoints next cycle.
	SWEEP_TIMEOUT_SECOND int64 `yaml:"SWEEP_TIMEOUT_SECOND"`
}

func ParseArchiverAppSetting(path string) ArchiverAppSetting {
	c := ArchiverAppSetting{}
	yamlFile, err := ioutil.ReadFile(path)
	if err != nil {
		log.Fatal("yamlFile. get err: ", err.Error())
	}
	err = yaml.Unmarshal(yamlFile, &c)
	if err != nil {
		log.Fatal("Unmarshal: ", err)
	}
	return c
}
