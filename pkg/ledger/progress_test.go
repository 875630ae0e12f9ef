package ledger_test

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/lisanmuaddib/steam-harvest/pkg/ledger"
)

const checkpointPath = "/data/.checkpoint.json"

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var _ = Describe("ProgressLedger", func() {
	var (
		fs       afero.Fs
		progress *ledger.ProgressLedger
	)

	BeforeEach(func() {
		fs = afero.NewMemMapFs()
		progress = ledger.NewProgressLedger(fs, checkpointPath, quietLogger())
	})

	It("reports never-seen identifiers as not done", func() {
		Expect(progress.IsDone("42", ledger.TaskCatalogItem)).To(BeFalse())
		_, ok := progress.Status("42", ledger.TaskCatalogItem)
		Expect(ok).To(BeFalse())
	})

	It("keeps task types independent", func() {
		Expect(progress.MarkDone("42", ledger.TaskCatalogItem)).To(Succeed())
		Expect(progress.IsDone("42", ledger.TaskCatalogItem)).To(BeTrue())
		Expect(progress.IsDone("42", ledger.TaskHistoryItem)).To(BeFalse())
	})

	It("treats a repeated MarkDone as a no-op", func() {
		Expect(progress.MarkDone("42", ledger.TaskCatalogItem)).To(Succeed())
		first, err := afero.ReadFile(fs, checkpointPath)
		Expect(err).NotTo(HaveOccurred())
		before := progress.Snapshot()

		Expect(progress.MarkDone("42", ledger.TaskCatalogItem)).To(Succeed())

		second, err := afero.ReadFile(fs, checkpointPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
		Expect(progress.Snapshot()).To(Equal(before))
	})

	It("holds at most one status per key", func() {
		Expect(progress.MarkFailed("7", ledger.TaskHistoryItem)).To(Succeed())
		Expect(progress.MarkDone("7", ledger.TaskHistoryItem)).To(Succeed())

		snap := progress.Snapshot()
		part := snap.Tasks[ledger.TaskHistoryItem]
		Expect(part.Completed).To(ConsistOf("7"))
		Expect(part.Failed).To(BeEmpty())
	})

	It("survives a reload from disk", func() {
		Expect(progress.MarkDone("1", ledger.TaskCatalogItem)).To(Succeed())
		Expect(progress.MarkFailed("2", ledger.TaskCatalogItem)).To(Succeed())
		Expect(progress.MarkDone("1", ledger.TaskHistoryItem)).To(Succeed())

		reloaded := ledger.NewProgressLedger(fs, checkpointPath, quietLogger())
		_, err := reloaded.LoadAll()
		Expect(err).NotTo(HaveOccurred())

		Expect(reloaded.IsDone("1", ledger.TaskCatalogItem)).To(BeTrue())
		Expect(reloaded.Failed(ledger.TaskCatalogItem)).To(Equal([]string{"2"}))
		Expect(reloaded.Counts(ledger.TaskHistoryItem)).To(Equal(ledger.Counts{Completed: 1}))
	})

	It("writes whole snapshots and leaves no temp files behind", func() {
		for i := 0; i < 20; i++ {
			Expect(progress.MarkDone(fmt.Sprint(i), ledger.TaskCatalogItem)).To(Succeed())
		}

		raw, err := afero.ReadFile(fs, checkpointPath)
		Expect(err).NotTo(HaveOccurred())
		var snap ledger.Snapshot
		Expect(json.Unmarshal(raw, &snap)).To(Succeed())
		Expect(snap.Tasks[ledger.TaskCatalogItem].Completed).To(HaveLen(20))

		names, err := afero.Glob(fs, "/data/.*.tmp-*")
		Expect(err).NotTo(HaveOccurred())
		Expect(names).To(BeEmpty())
	})

	It("starts empty when the checkpoint file is corrupt", func() {
		Expect(afero.WriteFile(fs, checkpointPath, []byte("{not json"), 0o644)).To(Succeed())
		snap, err := progress.LoadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Tasks).To(BeEmpty())
	})

	It("defers writes until the flush threshold is reached", func() {
		batched := ledger.NewProgressLedger(fs, checkpointPath, quietLogger(), ledger.WithFlushEvery(3))
		Expect(batched.MarkDone("1", ledger.TaskCatalogItem)).To(Succeed())
		Expect(batched.MarkDone("2", ledger.TaskCatalogItem)).To(Succeed())

		exists, err := afero.Exists(fs, checkpointPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())

		Expect(batched.Flush()).To(Succeed())
		exists, err = afero.Exists(fs, checkpointPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())
	})

	It("round-trips Save and LoadAll", func() {
		snap := ledger.Snapshot{Tasks: map[ledger.TaskType]ledger.Partition{
			ledger.TaskCatalogItem: {Completed: []string{"1", "2"}, Failed: []string{"3"}},
		}}
		Expect(progress.Save(snap)).To(Succeed())

		loaded, err := ledger.NewProgressLedger(fs, checkpointPath, quietLogger()).LoadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Tasks[ledger.TaskCatalogItem].Completed).To(Equal([]string{"1", "2"}))
		Expect(loaded.Tasks[ledger.TaskCatalogItem].Failed).To(Equal([]string{"3"}))
	})

	It("resets one task type or everything", func() {
		Expect(progress.MarkDone("1", ledger.TaskCatalogItem)).To(Succeed())
		Expect(progress.MarkDone("1", ledger.TaskHistoryItem)).To(Succeed())

		Expect(progress.Reset(ledger.TaskHistoryItem)).To(Succeed())
		Expect(progress.IsDone("1", ledger.TaskCatalogItem)).To(BeTrue())
		Expect(progress.IsDone("1", ledger.TaskHistoryItem)).To(BeFalse())

		Expect(progress.Reset()).To(Succeed())
		Expect(progress.IsDone("1", ledger.TaskCatalogItem)).To(BeFalse())
		exists, err := afero.Exists(fs, checkpointPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
	})

	It("serves IsDone while other identifiers are being marked", func() {
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer GinkgoRecover()
				defer wg.Done()
				for i := 0; i < 25; i++ {
					id := fmt.Sprintf("%d-%d", w, i)
					Expect(progress.MarkDone(id, ledger.TaskCatalogItem)).To(Succeed())
					Expect(progress.IsDone(id, ledger.TaskCatalogItem)).To(BeTrue())
				}
			}(w)
		}
		wg.Wait()
		Expect(progress.Counts(ledger.TaskCatalogItem).Completed).To(Equal(200))
	})
})
