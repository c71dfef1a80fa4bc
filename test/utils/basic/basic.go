package basic

import (
	"bufio"
	"errors"
	"net/http"
	"os"
	"strings"

	"testing"

	"github.com/Azure/azure-sdk-for-go/storage"

	"github.com/khenidak/crossdc/pkg/config"
)

const TestingVarsEnv = "CROSSDC_TESTING_VARS"

// parses testing vars file (expected to be as ENV VAR) and convert it
// to a map. Tests that need a real storage account are skipped when
// the var is not set.
func GetTestingVars(t testing.TB) map[string]string {
	t.Helper()
	m := make(map[string]string)
	testingVarsPath := os.Getenv(TestingVarsEnv)
	if len(testingVarsPath) == 0 {
		t.Skipf("no testing vars file defined (%s), skipping", TestingVarsEnv)
	}

	file, err := os.Open(testingVarsPath)
	if err != nil {
		t.Fatalf("failed to open testing vars %v err:%v", testingVarsPath, err)
	}
	defer file.Close()

	fscanner := bufio.NewScanner(file)
	for fscanner.Scan() {
		txt := strings.TrimSpace(fscanner.Text())
		if txt == "" || strings.HasPrefix(txt, "#") {
			continue
		}
		parts := strings.SplitN(txt, " ", 2)
		if len(parts) == 2 {
			m[parts[0]] = strings.TrimSpace(parts[1])
		} else {
			m[txt] = ""
		}
	}

	return m
}

// creates azure table test config based on testing var file.
func MakeTestConfig(t testing.TB, clearTable bool) *config.Config {
	t.Helper()
	configVals := GetTestingVars(t)

	c := config.NewConfig()
	c.DataCenter = "test-dc"
	c.LocalIP = "127.0.0.1"
	c.StoreType = config.StoreTypeAzureTable
	c.AzureTable.AccountName = configVals["ACCOUNT_NAME"]
	c.AzureTable.StorageKey.AccountPrimaryKey = configVals["ACCOUNT_KEY"]
	c.AzureTable.StorageKey.ConnectionString = configVals["CONNECTION_STRING"]
	c.AzureTable.TableName = configVals["TABLE_NAME"]

	if err := c.Validate(); err != nil {
		t.Fatalf("failed to validate config:%v", err)
	}

	if err := c.InitRuntime(); err != nil {
		t.Fatalf("failed to init runtime with err:%v", err)
	}

	_, dontRecreate := configVals["DO_NOT_RECREATE_TABLE"]
	if dontRecreate {
		return c
	}
	if clearTable {
		t.Logf("** CLEARING TABLE, will take a bit")
		ClearTable(t, c)
	}
	return c
}

func ClearTable(t testing.TB, c *config.Config) {
	var status storage.AzureStorageServiceError
	// cosmos db is cool with this but old storage takes a long time to delete
	err := c.Runtime.StorageTable.Delete(100, &storage.TableOptions{})
	if err != nil {
		if !errors.As(err, &status) {
			t.Fatalf("unknown err:%v", err)
		}

		if status.StatusCode != http.StatusNotFound {
			t.Fatalf("got status code %d:  %v", status.StatusCode, err)
		}
	}

	attempts := 0
	for attempts < 10 {
		// add the table back for other tests to successfully use it
		err = c.Runtime.StorageTable.Create(100, storage.EmptyPayload, &storage.TableOptions{})
		if err == nil {
			return
		}
		if !errors.As(err, &status) {
			t.Fatalf("unknown err:%v", err)
		}
		// table deletion in the previous can take a few seconds to succeed before we can recreate again
		if status.StatusCode != http.StatusConflict {
			t.Fatalf("got status code %d:  %v", status.StatusCode, err)
		}
		attempts++
	}
	t.Fatalf("failed to recreate table after %d attempts", attempts)
}
