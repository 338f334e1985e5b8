package abi

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	EventWorkerRegistered  string = "WorkerRegistered"
	EventWorkerVerified    string = "WorkerVerified"
	EventJobCreated        string = "JobCreated"
	EventJobAssigned       string = "JobAssigned"
	EventJobCompleted      string = "JobCompleted"
	EventReputationUpdated string = "ReputationUpdated"
)

var (
	RegistryAbi abi.ABI
	// RegistryEvents lists the six JobRegistry event kinds in no particular order.
	RegistryEvents = []string{
		EventWorkerRegistered, EventWorkerVerified, EventJobCreated,
		EventJobAssigned, EventJobCompleted, EventReputationUpdated,
	}
	TopicToEvent = make(map[common.Hash]string)
)

// InitRegistryAbi reads the JobRegistry contract description, initiates the
// ABI object and creates a correspondence between event topics and names.
func InitRegistryAbi(registryContractFile string) {
	file, err := os.ReadFile(registryContractFile)
	if err != nil {
		fmt.Println("Registry contract error", err)
		os.Exit(1)
	}
	var objMap map[string]json.RawMessage
	err = json.Unmarshal(file, &objMap)
	if err != nil {
		fmt.Println("Registry contract error", err)
		os.Exit(1)
	}
	abiBytes, err := objMap["abi"].MarshalJSON()
	if err != nil {
		fmt.Println("Registry contract error", err)
		os.Exit(1)
	}
	r := strings.NewReader(string(abiBytes))
	RegistryAbi, err = abi.JSON(r)
	if err != nil {
		fmt.Println("Registry contract error", err)
		os.Exit(1)
	}

	for _, name := range RegistryEvents {
		event, ok := RegistryAbi.Events[name]
		if !ok {
			fmt.Println("Registry contract event missing:", name)
			os.Exit(1)
		}
		TopicToEvent[event.ID] = name
	}
}

func EventByName(name string) (abi.Event, error) {
	event, ok := RegistryAbi.Events[name]
	if !ok {
		return abi.Event{}, fmt.Errorf("not an event name: %s", name)
	}
	return event, nil
}

// EventTopics returns the topic hashes of all registry events, for use in a
// log filter query.
func EventTopics() []common.Hash {
	topics := make([]common.Hash, 0, len(TopicToEvent))
	for topic := range TopicToEvent {
		topics = append(topics, topic)
	}
	return topics
}

// UnpackData decodes the non-indexed inputs of the named event from raw log
// data.
func UnpackData(name string, data []byte) ([]interface{}, error) {
	event, err := EventByName(name)
	if err != nil {
		return nil, err
	}
	return event.Inputs.NonIndexed().Unpack(data)
}
