package workflow_test

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/flowshare/allocation_backend/config"
	"bitbucket.org/flowshare/allocation_backend/models"
	"bitbucket.org/flowshare/allocation_backend/workflow"
)

// Requires docker. Run with INTEGRATION_TESTS=1.
func TestProcessReconciliationWorkflowNoApprovedEntriesFailsRun(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run docker-backed tests")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "flowshare_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	db := config.GetDB()

	tenant := &models.Tenant{
		ID:                  "jv-empty-period",
		Name:                "Empty Period JV",
		AllocationModel:     models.AllocationModelMPMS111,
		StandardTemperature: decimal.NewFromInt(60),
		StandardPressure:    decimal.RequireFromString("14.696"),
	}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	receipt := &models.TerminalReceipt{
		TenantId:       tenant.ID,
		ReceiptDate:    time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		TerminalVolume: decimal.RequireFromString("10480.25"),
		TerminalName:   "Coast Terminal 3",
	}
	if err := db.Create(receipt).Error; err != nil {
		t.Fatalf("create terminal receipt: %v", err)
	}

	// No production entries at all for this tenant, so the period has
	// nothing approved to reconcile against the receipt.
	recon := &models.Reconciliation{
		TenantId:          tenant.ID,
		TerminalReceiptId: receipt.ID,
		PeriodStart:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:         time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		TerminalVolume:    receipt.TerminalVolume,
		Status:            models.ReconciliationStatusPending,
	}
	if err := db.Create(recon).Error; err != nil {
		t.Fatalf("create reconciliation: %v", err)
	}

	msg := config.ReconciliationTriggerMessage{
		ReconciliationId: recon.ID,
		TenantId:         tenant.ID,
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		return workflow.ProcessReconciliationWorkflow(tx, config.GetLogger(), msg)
	})
	// A run with no approved entries fails the single run; the transport
	// must not see an error, or the message would be redelivered forever.
	if err != nil {
		t.Fatalf("ProcessReconciliationWorkflow: %v", err)
	}

	var failed models.Reconciliation
	if err := db.Where("id = ? AND tenant_id = ?", recon.ID, tenant.ID).Take(&failed).Error; err != nil {
		t.Fatalf("reload reconciliation: %v", err)
	}
	if failed.Status != models.ReconciliationStatusFailed {
		t.Fatalf("status expected %s, got %s", models.ReconciliationStatusFailed, failed.Status)
	}
	if !strings.Contains(failed.ErrorMessage, string(workflow.ErrNoApprovedEntries)) {
		t.Fatalf("error message must carry the failure kind, got %q", failed.ErrorMessage)
	}
	if failed.Result != nil {
		t.Fatalf("failed run must not store a partial result, got %+v", failed.Result)
	}
	if failed.CompletedAt != nil {
		t.Fatalf("failed run must not stamp completed_at, got %v", failed.CompletedAt)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("flowshare-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=flowshare_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
