package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const bubbleSort = `def bubble_sort(arr):
    n = len(arr)
    for i in range(n):
        for j in range(0, n - i - 1):
            if arr[j] > arr[j + 1]:
                arr[j], arr[j + 1] = arr[j + 1], arr[j]
    return arr
`

const renamedBubbleSort = `# sap xep noi bot
def sort_list(a):
    size = len(a)  # do dai
    for x in range(size):
        for y in range(0, size - x - 1):
            if a[y] > a[y + 1]:
                a[y], a[y + 1] = a[y + 1], a[y]
    return a
`

const earlyExitBubbleSort = `def bubble_sort(arr):
    n = len(arr)
    for i in range(n):
        swapped = False
        for j in range(0, n - i - 1):
            if arr[j] > arr[j + 1]:
                arr[j], arr[j + 1] = arr[j + 1], arr[j]
                swapped = True
        if not swapped:
            break
    return arr
`

const breadthFirst = `from collections import deque

def bfs(graph, start):
    seen = {start}
    queue = deque([start])
    order = []
    while queue:
        node = queue.popleft()
        order.append(node)
        for nxt in graph[node]:
            if nxt not in seen:
                seen.add(nxt)
                queue.append(nxt)
    return order
`

func TestFingerprintIgnoresNamesAndComments(t *testing.T) {
	require.Equal(t, 1.0, NewFingerprint(bubbleSort).Similarity(NewFingerprint(renamedBubbleSort)))
	require.Less(t, NewFingerprint(bubbleSort).Similarity(NewFingerprint(breadthFirst)), 0.5)
}

func TestFingerprintKeepsHashInsideStrings(t *testing.T) {
	require.Equal(t, "print(\"#1\") \nx = '#'  \n", stripComments("print(\"#1\") # first\nx = '#'  # hash"))
}

func TestFindSimilar(t *testing.T) {
	pairs := FindSimilar([]string{bubbleSort, breadthFirst, renamedBubbleSort, earlyExitBubbleSort}, 0.85)

	require.Len(t, pairs, 1)
	require.Equal(t, 0, pairs[0].First)
	require.Equal(t, 2, pairs[0].Second)
	require.Equal(t, 1.0, pairs[0].Similarity)
}

func TestFindSimilarSkipsShortAndEmptySources(t *testing.T) {
	require.Empty(t, FindSimilar([]string{"print(1)", "print(1)", "", ""}, 0.85))
}
