package utils

import (
	"os"
	"path/filepath"

	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/entities"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type config interface {
	entities.DeviceConfig | map[string]entities.DeviceConfig
}

func readTextFile(filepathName string) ([]byte, error) {
	fileContent, err := os.ReadFile(filepath.Clean(filepathName))
	return fileContent, err
}

// ConfigurationParser decodes the yaml file on top of configEntity, so
// fields absent from the file keep the values already present.
func ConfigurationParser[T config](filepathName string, configEntity T) (T, error) {
	fileContent, err := readTextFile(filepath.Clean(filepathName))
	if err != nil {
		return configEntity, err
	}

	err = yaml.Unmarshal(fileContent, &configEntity)
	return configEntity, err
}

// LoadDeviceConfig builds the runtime configuration: SDK defaults, then the
// optional yaml file, then environment overrides.
func LoadDeviceConfig(filepathName string) (entities.DeviceConfig, error) {
	deviceConfig := entities.DefaultDeviceConfig()
	if filepathName != "" {
		var err error
		deviceConfig, err = ConfigurationParser(filepathName, deviceConfig)
		if err != nil {
			return deviceConfig, errors.Wrapf(entities.ErrConfiguration, "read %s: %v", filepathName, err)
		}
	}

	if err := ApplyEnvironmentOverrides(&deviceConfig); err != nil {
		return deviceConfig, err
	}
	return deviceConfig, nil
}
